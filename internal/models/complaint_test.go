package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusClosed.IsTerminal())

	for _, status := range []ComplaintStatus{
		StatusSubmitted,
		StatusAssigned,
		StatusInProgress,
		StatusResolved,
		StatusRejected,
	} {
		assert.Falsef(t, status.IsTerminal(), "status %s", status)
	}
}
