package colpali

import "github.com/kefio/ColPali-Workbench/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrEmptyQuery             = domain.ErrEmptyQuery
	ErrInvalidVectorLength    = domain.ErrInvalidVectorLength
	ErrInvalidQueryEmbedding  = domain.ErrInvalidQueryEmbedding
	ErrInvalidRequest         = domain.ErrInvalidRequest
	ErrRecordBuild            = domain.ErrRecordBuild
	ErrFeedSubmission         = domain.ErrFeedSubmission
	ErrQueryExecution         = domain.ErrQueryExecution
	ErrSessionTimeout         = domain.ErrSessionTimeout
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)
