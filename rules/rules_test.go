package rules

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubMessage implements Message for tests and counts lazy fetches so that
// short-circuit behavior is observable.
type stubMessage struct {
	uid        uint32
	sender     string
	recipients []string
	subject    string
	date       time.Time
	size       int64
	flags      []string
	headers    map[string]string
	body       string

	headerErr error
	bodyErr   error

	bodyFetches   int
	headerFetches int
}

func (m *stubMessage) UID() uint32          { return m.uid }
func (m *stubMessage) Sender() string       { return m.sender }
func (m *stubMessage) Recipients() []string { return m.recipients }
func (m *stubMessage) Subject() string      { return m.subject }
func (m *stubMessage) Date() time.Time      { return m.date }
func (m *stubMessage) Size() int64          { return m.size }

func (m *stubMessage) HasFlag(name string) bool {
	for _, f := range m.flags {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

func (m *stubMessage) Header(_ context.Context, name string) (string, bool, error) {
	m.headerFetches++
	if m.headerErr != nil {
		return "", false, m.headerErr
	}
	v, ok := m.headers[strings.ToLower(name)]
	return v, ok, nil
}

func (m *stubMessage) BodyText(_ context.Context) (string, error) {
	m.bodyFetches++
	if m.bodyErr != nil {
		return "", m.bodyErr
	}
	return m.body, nil
}

// mustLoad compiles a YAML rules document, failing the test on error.
func mustLoad(t *testing.T, doc string, opts Options) *RuleSet {
	t.Helper()
	rs, err := loadString(doc, opts)
	require.NoError(t, err)
	return rs
}

func loadString(doc string, opts Options) (*RuleSet, error) {
	return LoadBytes([]byte(doc), opts)
}
