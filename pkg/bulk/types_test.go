package bulk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/holds/pkg/content"
)

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" add ")
	require.NoError(t, err)
	assert.Equal(t, ActionAdd, a)

	a, err = ParseAction("Remove")
	require.NoError(t, err)
	assert.Equal(t, ActionRemove, a)

	_, err = ParseAction("copy")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "action", validation.Field)
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusDone.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ItemRecord, Classify(content.KindRecord))
	assert.Equal(t, ItemContainer, Classify(content.KindContainer))
	assert.Equal(t, ItemUnsupported, Classify(content.KindOther))
	assert.Equal(t, ItemUnsupported, Classify("unknown"))
	assert.Equal(t, "container", ItemContainer.String())
}

func TestErrors_Unwrap(t *testing.T) {
	cause := assert.AnError

	assert.ErrorIs(t, &PerNodeError{JobID: "j", Item: "i", Action: ActionAdd, Cause: cause}, cause)
	assert.ErrorIs(t, &FatalJobError{JobID: "j", Cause: cause}, cause)
	assert.ErrorIs(t, &ValidationError{Field: "hold", Message: "m", Cause: cause}, cause)
	assert.ErrorIs(t, &NotFoundError{ID: "x"}, ErrNotFound)
}
