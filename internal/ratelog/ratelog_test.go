package ratelog_test

import (
	"testing"

	"github.com/xive-go/xive/internal/ratelog"
)

func TestPrintfDoesNotPanic(t *testing.T) {
	t.Parallel()

	l := ratelog.New("test")
	for i := 0; i < 50; i++ {
		l.Printf("guest poked offset %#x", i)
	}
}
