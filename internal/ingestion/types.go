// Package ingestion defines the upload response and the Kafka event schema of
// the dataset ingestion pipeline.
package ingestion

import "time"

// UploadResponse is returned after a dataset upload is accepted.
type UploadResponse struct {
	DatasetID   string    `json:"dataset_id"`
	Name        string    `json:"name"`
	RowCount    int       `json:"row_count"`
	Fingerprint string    `json:"fingerprint"`
	Duplicate   bool      `json:"duplicate"`
	CreatedAt   time.Time `json:"created_at"`
}

// DatasetSummary is the GET /api/v1/datasets/{id} body. Series lists the
// distinct partitions of the dataset's numbers.
type DatasetSummary struct {
	DatasetID     string    `json:"dataset_id"`
	Name          string    `json:"name"`
	Fingerprint   string    `json:"fingerprint"`
	RowCount      int       `json:"row_count"`
	UsableRecords int       `json:"registros_validos"`
	Series        []string  `json:"series"`
	CreatedAt     time.Time `json:"created_at"`
}

// DatasetIngestedEvent is published on the dataset-ingest topic once the
// rows are committed.
type DatasetIngestedEvent struct {
	DatasetID   string    `json:"dataset_id"`
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	RowCount    int       `json:"row_count"`
	IngestedAt  time.Time `json:"ingested_at"`
}
