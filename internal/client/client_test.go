package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_WaitReturnsResolvedID(t *testing.T) {
	h := NewHandle()
	go h.Resolve("abc", nil)

	id, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestHandle_FirstResolveWins(t *testing.T) {
	h := NewHandle()
	h.Resolve("first", nil)
	h.Resolve("second", errors.New("late"))

	id, ok := h.ID()
	assert.True(t, ok)
	assert.Equal(t, "first", id)
}

func TestHandle_WaitHonoursContext(t *testing.T) {
	h := NewHandle()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := h.ID()
	assert.False(t, ok)
}

func TestHandle_OnResolveBeforeAndAfter(t *testing.T) {
	h := NewHandle()
	var got []string
	h.OnResolve(func(id string) { got = append(got, "early:"+id) })
	h.Resolve("x", nil)
	h.OnResolve(func(id string) { got = append(got, "late:"+id) })

	assert.Equal(t, []string{"early:x", "late:x"}, got)
}

func TestHandle_OnResolveSkippedOnError(t *testing.T) {
	h := Failed(errors.New("down"))
	called := false
	h.OnResolve(func(string) { called = true })

	assert.False(t, called)
	_, err := h.Wait(context.Background())
	assert.EqualError(t, err, "down")
}

func TestHandle_ConcurrentOnResolve(t *testing.T) {
	h := NewHandle()
	var mu sync.Mutex
	count := 0

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.OnResolve(func(string) {
				mu.Lock()
				count++
				mu.Unlock()
			})
		}()
	}
	h.Resolve("id", nil)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 50, count)
}

func TestMemory_RecordsTree(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.StartLaunch(ctx, StartLaunchRQ{Name: "run"})
	feature := m.StartItem(ctx, nil, StartItemRQ{Name: "Feature: Login", Type: ItemStory})
	scenario := m.StartItem(ctx, feature, StartItemRQ{Name: "Scenario: In", Type: ItemStep})
	m.FinishItem(ctx, scenario, FinishItemRQ{Status: StatusPassed})
	m.Log(ctx, LogRQ{Item: scenario, Level: LevelInfo, Message: "hi"})
	m.FinishLaunch(ctx, FinishExecutionRQ{})

	items := m.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "", items[0].ParentID)
	assert.Equal(t, items[0].ID, items[1].ParentID)
	require.NotNil(t, items[1].Finish)
	assert.Equal(t, StatusPassed, items[1].Finish.Status)
	assert.Nil(t, items[0].Finish)

	assert.Len(t, m.Children(items[0].ID), 1)
	assert.Len(t, m.ItemsOfType(ItemStory), 1)

	logs := m.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, items[1].ID, logs[0].ItemID)

	var methods []string
	for _, c := range m.Calls() {
		methods = append(methods, c.Method)
	}
	assert.Equal(t, []string{"StartLaunch", "StartItem", "StartItem", "FinishItem", "Log", "FinishLaunch"}, methods)

	start, finish := m.Launch()
	assert.Equal(t, "run", start.Name)
	assert.NotNil(t, finish)
}

func TestMemory_FinishUnknownItem(t *testing.T) {
	m := NewMemory()
	h := m.FinishItem(context.Background(), Resolved("nope"), FinishItemRQ{})

	_, err := h.Wait(context.Background())
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestMemory_FailedParentPropagates(t *testing.T) {
	m := NewMemory()
	h := m.StartItem(context.Background(), Failed(errors.New("down")), StartItemRQ{Name: "child"})

	_, err := h.Wait(context.Background())
	assert.Error(t, err)
	assert.Empty(t, m.Items())
}
