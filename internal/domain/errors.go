package domain

import "errors"

// DontKnow is the literal answer the QA prompt asks for when the context
// does not contain the answer.
const DontKnow = "I don't know!"

var (
	// ErrConfig marks missing or invalid external-service configuration.
	ErrConfig = errors.New("config error")

	// ErrLoad marks an unreadable or unsupported document.
	ErrLoad = errors.New("load error")

	// ErrIndexBuild marks an embedding or indexing failure during ingestion.
	ErrIndexBuild = errors.New("index build error")

	// ErrRetrieval marks a query against a missing or empty index.
	ErrRetrieval = errors.New("retrieval error")

	// ErrGeneration marks a completion-service failure or timeout.
	ErrGeneration = errors.New("generation error")
)
