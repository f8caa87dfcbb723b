package collective

import (
	"fmt"
	"testing"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/openfga/reactive/internal/mocks"
	"github.com/openfga/reactive/pkg/query"
	"github.com/openfga/reactive/pkg/tick"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCoalescesSameKeyWithinOnePoll(t *testing.T) {
	tx, rx := New[string, int]()
	defer tx.Close()

	first := make(chan struct{})
	var wg conc.WaitGroup
	wg.Go(func() {
		tx.Send("k", query.NewInsert(1))
		close(first)
	})
	wg.Go(func() {
		<-first
		tx.Send("k", query.NewDelta(2, 1))
	})
	wg.Wait()

	changes, status := rx.Poll(tick.Noop(1))
	require.Equal(t, Ready, status)
	require.Equal(t, query.ChangeMap[string, int]{"k": query.NewInsert(2)}, changes)

	_, status = rx.Poll(tick.Noop(2))
	require.Equal(t, Pending, status)
}

func TestInsertThenRemoveIsInvisible(t *testing.T) {
	tx, rx := New[int, string]()
	defer tx.Close()

	tx.Transact(func(t *Tx[int, string]) {
		t.Send(1, query.NewInsert("a"))
		t.Send(2, query.NewInsert("b"))
		t.Send(1, query.NewRemove("a"))
	})

	changes, status := rx.Poll(tick.Noop(1))
	require.Equal(t, Ready, status)
	require.Equal(t, query.ChangeMap[int, string]{2: query.NewInsert("b")}, changes)
}

func TestConcurrentProducers(t *testing.T) {
	tx, rx := New[string, int]()
	notifier := tick.NewNotifier()

	// register the waker before any send
	_, status := rx.Poll(tick.NewContext(0, notifier))
	require.Equal(t, Pending, status)

	const producers = 8
	const perProducer = 100

	var wg conc.WaitGroup
	for p := range producers {
		sender := tx.Clone()
		wg.Go(func() {
			defer sender.Close()
			for i := range perProducer {
				key := fmt.Sprintf("%d/%d", p, i)
				sender.Send(key, query.NewInsert(i))
				sender.Send(key, query.NewDelta(i+1, i))
			}
		})
	}
	wg.Wait()
	require.NoError(t, tx.Close())

	require.True(t, notifier.Woken())

	changes, status := rx.Poll(tick.NewContext(1, notifier))
	require.Equal(t, Ready, status)
	require.Len(t, changes, producers*perProducer)
	for _, c := range changes {
		require.True(t, c.IsInsert())
	}

	_, status = rx.Poll(tick.NewContext(2, notifier))
	require.Equal(t, Closed, status)

	select {
	case <-rx.Done():
	default:
		require.Fail(t, "done must be closed after the last sender")
	}
}

func TestClosedOnlyAfterDrain(t *testing.T) {
	tx, rx := New[int, int]()
	tx.Send(1, query.NewInsert(1))
	require.NoError(t, tx.Close())
	require.NoError(t, tx.Close())

	require.True(t, rx.HasChange())
	_, status := rx.Poll(tick.Noop(1))
	require.Equal(t, Ready, status)

	_, status = rx.Poll(tick.Noop(2))
	require.Equal(t, Closed, status)
	for id := range uint64(3) {
		changes, status := rx.Poll(tick.Noop(3 + id))
		require.Equal(t, Pending, status)
		require.Empty(t, changes)
	}
}

func TestSendOnClosedSenderPanics(t *testing.T) {
	tx, _ := New[int, int]()
	require.NoError(t, tx.Close())

	require.Panics(t, func() {
		tx.Send(1, query.NewInsert(1))
	})
	require.Panics(t, func() {
		tx.Clone()
	})
}

func TestTransactReleasesOnPanic(t *testing.T) {
	tx, rx := New[int, int]()
	defer tx.Close()

	require.Panics(t, func() {
		tx.Transact(func(t *Tx[int, int]) {
			t.Send(1, query.NewInsert(1))
			t.Send(1, query.NewRemove(1))
			t.Send(2, query.NewRemove(2))
			t.Send(2, query.NewRemove(2))
		})
	})

	// the section must have been released
	tx.Send(3, query.NewInsert(3))
	changes, status := rx.Poll(tick.Noop(1))
	require.Equal(t, Ready, status)
	require.Contains(t, changes, 3)
}

func TestReceiverClose(t *testing.T) {
	tx, rx := New[int, int]()
	defer tx.Close()

	require.False(t, tx.IsClosed())
	require.NoError(t, rx.Close())
	require.True(t, tx.IsClosed())

	tx.Send(1, query.NewInsert(1))
	require.False(t, rx.HasChange())
}

func TestPendingInsideTransaction(t *testing.T) {
	tx, _ := New[int, int]()
	defer tx.Close()

	tx.Transact(func(t *Tx[int, int]) {
		t.Send(1, query.NewInsert(1))
		c, ok := t.Pending(1)
		if !ok || !c.IsInsert() {
			panic("pending change not visible inside the transaction")
		}
	})
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "pending", Pending.String())
	require.Equal(t, "ready", Ready.String())
	require.Equal(t, "closed", Closed.String())
	require.Equal(t, "unknown", Status(42).String())
}

func TestWakesRegisteredWaker(t *testing.T) {
	ctrl := gomock.NewController(t)
	waker := mocks.NewMockWaker(ctrl)

	tx, rx := New[string, int]()

	// nothing is registered before the first poll
	tx.Send("a", query.NewInsert(1))

	_, status := rx.Poll(tick.NewContext(1, waker))
	require.Equal(t, Ready, status)

	waker.EXPECT().Wake().Times(2)

	tx.Transact(func(t *Tx[string, int]) {
		t.Send("b", query.NewInsert(2))
		t.Send("c", query.NewInsert(3))
	})
	// an empty transaction does not wake
	tx.Transact(func(*Tx[string, int]) {})

	require.NoError(t, tx.Close())
	require.NoError(t, tx.Close())
}
