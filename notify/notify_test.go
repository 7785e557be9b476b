package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	src := new(int)
	Multi{a, nil, b, Null}.Notify(Event{Source: src, Property: PropState})

	assert.Equal(t, 1, a.Count(src, PropState))
	assert.Equal(t, 1, b.Count(nil, PropState))
	assert.Equal(t, 0, b.Count(src, PropResult))
}

func TestRecorderReset(t *testing.T) {
	r := &Recorder{}
	var calls int
	Multi{r, NotifierFunc(func(Event) { calls++ })}.Notify(Event{Property: PropProgress})
	assert.Len(t, r.Events(), 1)
	assert.Equal(t, 1, calls)

	r.Reset()
	assert.Empty(t, r.Events())
}
