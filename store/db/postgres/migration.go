package postgres

const schema = `
CREATE TABLE conversation (
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	creator_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	locale TEXT NOT NULL DEFAULT 'en',
	category TEXT,
	favourite BOOLEAN NOT NULL DEFAULT FALSE,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL
);

CREATE INDEX idx_conversation_creator_id ON conversation (creator_id);

CREATE TABLE message (
	id BIGSERIAL PRIMARY KEY,
	conversation_id INTEGER NOT NULL REFERENCES conversation (id) ON DELETE CASCADE,
	role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	content TEXT NOT NULL,
	image_ref TEXT,
	created_ts BIGINT NOT NULL
);

CREATE INDEX idx_message_conversation_id ON message (conversation_id, created_ts, id);

CREATE TABLE attachment (
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	creator_id INTEGER NOT NULL,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size BIGINT NOT NULL,
	reference TEXT NOT NULL,
	thumbnail_ref TEXT,
	created_ts BIGINT NOT NULL
);

CREATE INDEX idx_attachment_creator_id ON attachment (creator_id);
`
