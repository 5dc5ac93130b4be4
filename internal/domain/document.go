package domain

import "time"

// SourceType classifies where a document's content came from.
type SourceType string

const (
	SourceTypePage    SourceType = "page"
	SourceTypePDF     SourceType = "pdf"
	SourceTypeProduct SourceType = "product"
	SourceTypeAPI     SourceType = "api"
)

// Document is a source unit of crawled content. Documents are created and
// updated by the ingestion collaborator; the engine only reads them through
// chunk references.
type Document struct {
	ID           string
	SourceURI    string
	ContentHash  string
	SourceType   SourceType
	LastModified time.Time
}

// ValidateDocument checks required fields on a Document.
func ValidateDocument(d *Document) error {
	if d == nil {
		return NewDomainError(ErrCodeValidation, "document cannot be nil")
	}
	if d.ID == "" {
		return NewDomainError(ErrCodeValidation, "document ID is required")
	}
	if d.SourceURI == "" {
		return NewDomainError(ErrCodeValidation, "document source URI is required")
	}
	if !isValidSourceType(d.SourceType) {
		return NewDomainError(ErrCodeValidation, "invalid document source type: "+string(d.SourceType))
	}
	return nil
}

func isValidSourceType(s SourceType) bool {
	switch s {
	case SourceTypePage, SourceTypePDF, SourceTypeProduct, SourceTypeAPI:
		return true
	}
	return false
}
