// Package id provides centralized ID generation for the bridge.
//
// Correlation identifiers are prefixed ULIDs:
//   - Lexicographic sortability: pending-call dumps read in creation order
//   - Prefixed types: call_*, page_* make logs readable
//   - Monotonic entropy: ids minted within the same millisecond stay unique
//
// Frame identifiers minted on the native side are UUIDs, matching the
// format the injected bridge script generates for embedded frames.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// CallID identifies one correlated native-to-script call
type CallID string

// PageID identifies a displayed page attached to the frames router
type PageID string

// FrameID identifies a page frame (main or embedded)
type FrameID string

// ============================================================================
// ID Prefixes
// ============================================================================

const (
	CallPrefix = "call"
	PagePrefix = "page"
)

// MainFrame is the fixed identifier the bridge script uses for the top frame.
const MainFrame FrameID = "main"

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by monotonic crypto entropy
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewCallID generates a new correlation id
func NewCallID() CallID {
	return CallID(Default().GenerateWithPrefix(CallPrefix))
}

// NewPageID generates a new page id
func NewPageID() PageID {
	return PageID(Default().GenerateWithPrefix(PagePrefix))
}

// NewFrameID generates an id for an embedded frame that did not bring its own
func NewFrameID() FrameID {
	return FrameID(uuid.NewString())
}

func (id CallID) String() string  { return string(id) }
func (id PageID) String() string  { return string(id) }
func (id FrameID) String() string { return string(id) }

// IsMain reports whether the frame is the top-level page frame
func (id FrameID) IsMain() bool { return id == MainFrame || id == "" }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
