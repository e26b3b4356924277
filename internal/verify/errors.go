package verify

import "fmt"

// MaxBatchSize is the most EINs one batch request may carry.
const MaxBatchSize = 50

// InvalidIdentifierError reports an input that is not an EIN in either
// accepted spelling.
type InvalidIdentifierError struct {
	Input string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid EIN format %q: expected XX-XXXXXXX or XXXXXXXXX", e.Input)
}

// NotFoundError reports an EIN absent from the primary registry, whether
// discovered fresh or replayed from a cached negative.
type NotFoundError struct {
	EIN string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no nonprofit found with EIN %s", e.EIN)
}

// BatchTooLargeError reports a batch over the size cap. Raised before any
// quota or lookup side effects.
type BatchTooLargeError struct {
	Size int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("batch size %d exceeds maximum of %d EINs per request", e.Size, MaxBatchSize)
}
