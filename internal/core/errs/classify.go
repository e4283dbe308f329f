package errs

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Classify assigns a category to a raw error. Known error types are checked
// first, then the lower-cased message is matched against keyword groups in
// order: network, database, AI API.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	if cat, ok := classifyTyped(err); ok {
		return cat
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network"):
		return CategoryNetwork
	case strings.Contains(msg, "database") || strings.Contains(msg, "mysql"):
		return CategoryDatabase
	case strings.Contains(msg, "openai") || strings.Contains(msg, "api"):
		return CategoryAIAPI
	default:
		return CategoryUnknown
	}
}

func classifyTyped(err error) (Category, bool) {
	if e, ok := As(err); ok {
		return e.category, true
	}

	var (
		pqErr   *pq.Error
		pgErr   *pgconn.PgError
		apiErr  *openai.APIError
		reqErr  *openai.RequestError
		netErr  net.Error
		pathErr *fs.PathError
	)
	switch {
	case errors.As(err, &pqErr), errors.As(err, &pgErr),
		errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return CategoryDatabase, true
	case errors.As(err, &apiErr), errors.As(err, &reqErr):
		return CategoryAIAPI, true
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return CategoryNetwork, true
	case errors.As(err, &pathErr), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return CategoryFileSystem, true
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded:
			return CategoryNetwork, true
		case codes.Unauthenticated, codes.PermissionDenied:
			return CategoryAuthentication, true
		case codes.InvalidArgument:
			return CategoryValidation, true
		}
	}
	return "", false
}

// DefaultSeverity returns the severity used for a category when none is given.
func DefaultSeverity(c Category) Severity {
	switch c {
	case CategoryValidation:
		return SeverityLow
	case CategoryDatabase, CategoryFileSystem, CategoryAuthentication:
		return SeverityHigh
	case CategoryConfiguration:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

func defaultCode(c Category) string {
	switch c {
	case CategoryNetwork:
		return CodeNetwork
	case CategoryDatabase:
		return CodeDatabase
	case CategoryAIAPI:
		return CodeAIAPI
	case CategoryFileSystem:
		return CodeModelLoad
	case CategoryValidation:
		return CodeValidation
	case CategoryConfiguration:
		return CodeConfiguration
	default:
		return CodeUnknown
	}
}

// FromError converts any error to an *Error. Errors that already carry a
// classification are returned unchanged. The optional severity overrides the
// category default for raw errors.
func FromError(err error, ctx map[string]any, severity ...Severity) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}

	cat := Classify(err)
	sev := DefaultSeverity(cat)
	if len(severity) > 0 && severity[0].Rank() >= 0 {
		sev = severity[0]
	}
	return New(defaultCode(cat), err.Error(), cat, sev, WithCause(err), WithContext(ctx))
}
