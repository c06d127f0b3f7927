// Package validation provides common validation utilities for configuration
// parameters and task batches across slotflow.
//
// Configuration checks return errors that match ErrInvalidConfiguration;
// batch checks return errors that match ErrInvalidBatch.
package validation
