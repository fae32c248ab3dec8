package sqlite

const schema = `
-- Questions table
-- source_message_id is UNIQUE: at most one question per source message,
-- so redelivered events collapse into the existing row.
CREATE TABLE IF NOT EXISTS questions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    text TEXT NOT NULL,
    author_id TEXT NOT NULL DEFAULT '',
    author_name TEXT NOT NULL DEFAULT '',
    channel_id TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    source_message_id TEXT NOT NULL UNIQUE,
    confidence_score REAL NOT NULL DEFAULT 0 CHECK(confidence_score >= 0 AND confidence_score <= 1),
    status TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'answered', 'expired')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_questions_channel ON questions(channel_id);
CREATE INDEX IF NOT EXISTS idx_questions_status ON questions(status);
CREATE INDEX IF NOT EXISTS idx_questions_timestamp ON questions(timestamp);

-- Answers table
-- source_message_id is UNIQUE: one answer row per source message.
CREATE TABLE IF NOT EXISTS answers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    question_id INTEGER NOT NULL,
    text TEXT NOT NULL,
    author_id TEXT NOT NULL DEFAULT '',
    author_name TEXT NOT NULL DEFAULT '',
    channel_id TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    source_message_id TEXT NOT NULL UNIQUE,
    confidence_score REAL NOT NULL DEFAULT 0 CHECK(confidence_score >= 0 AND confidence_score <= 1),
    answer_quality TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (question_id) REFERENCES questions(id)
);

CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id);
CREATE INDEX IF NOT EXISTS idx_answers_channel ON answers(channel_id);

-- Q&A pairs table (denormalized projection for export)
-- (question, answer, channel) is UNIQUE: re-deriving the same pair from
-- a redelivered event is a no-op.
CREATE TABLE IF NOT EXISTS qa_pairs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    question_user TEXT NOT NULL DEFAULT '',
    answer_user TEXT NOT NULL DEFAULT '',
    channel TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    confidence_score REAL NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(question, answer, channel)
);

CREATE INDEX IF NOT EXISTS idx_qa_pairs_channel ON qa_pairs(channel);

-- Processed messages table (idempotence markers)
CREATE TABLE IF NOT EXISTS processed_messages (
    source_message_id TEXT PRIMARY KEY,
    channel_id TEXT NOT NULL DEFAULT '',
    processed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_processed_messages_channel ON processed_messages(channel_id);
`
