package ingest

import (
	"time"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
)

// Report describes one finished ingestion run.
type Report struct {
	DocID      string        `json:"doc_id"`
	Collection string        `json:"collection"`
	Created    bool          `json:"created"`
	Chunks     int           `json:"chunks"`
	Batches    int           `json:"batches"`
	Points     int           `json:"points"`
	Duration   time.Duration `json:"duration"`
}

// Job asks a worker to ingest one document.
type Job struct {
	DocID string `json:"doc_id"`
}

// JobResult answers a job sent with a reply subject.
type JobResult struct {
	Report *Report `json:"report,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// loaded is a document together with its extracted text.
type loaded struct {
	doc  domain.Document
	text string
}

// prepared is a document split into ordered chunks.
type prepared struct {
	doc    domain.Document
	chunks []domain.Chunk
}

// dlqMessage is published to the dead letter subject once a job gives up.
type dlqMessage struct {
	Job     Job    `json:"job"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}
