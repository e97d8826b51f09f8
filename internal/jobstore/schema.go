// Copyright 2025 James Ross
package jobstore

// Schema is the DDL this store expects to already be applied by migration
// tooling (out of scope per spec.md §1). Kept here as the authoritative
// reference for the column layout ops.go relies on.
const Schema = `
CREATE SEQUENCE IF NOT EXISTS job_id_seq;

CREATE TABLE IF NOT EXISTS job (
	job_id             TEXT PRIMARY KEY,
	owner              TEXT NOT NULL,
	run_id             TEXT,
	phase              TEXT NOT NULL,
	message_id         TEXT,
	error_type         TEXT,
	error_code         TEXT,
	error_message      TEXT,
	error_detail       TEXT,
	creation_time      TIMESTAMP NOT NULL,
	start_time         TIMESTAMP,
	end_time           TIMESTAMP,
	destruction_time   TIMESTAMP NOT NULL,
	execution_duration INTEGER NOT NULL,
	quote              TIMESTAMP
);
CREATE INDEX IF NOT EXISTS job_owner_phase_creation_idx ON job (owner, phase, creation_time);
CREATE INDEX IF NOT EXISTS job_owner_creation_idx ON job (owner, creation_time);

CREATE TABLE IF NOT EXISTS job_parameter (
	job_id          TEXT NOT NULL REFERENCES job(job_id) ON DELETE CASCADE,
	insertion_index INTEGER NOT NULL,
	parameter_id    TEXT NOT NULL,
	value           TEXT NOT NULL,
	is_post         BOOLEAN NOT NULL,
	PRIMARY KEY (job_id, insertion_index)
);

CREATE TABLE IF NOT EXISTS job_result (
	job_id    TEXT NOT NULL REFERENCES job(job_id) ON DELETE CASCADE,
	sequence  INTEGER NOT NULL,
	result_id TEXT NOT NULL,
	url       TEXT NOT NULL,
	size      BIGINT,
	mime_type TEXT,
	PRIMARY KEY (job_id, sequence)
);
`
