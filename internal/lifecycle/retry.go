package lifecycle

// RetryQueue maps cards denied by capacity to their source, in the order
// they were first denied.
type RetryQueue struct {
	order []string
	src   map[string]string
}

func newRetryQueue() *RetryQueue {
	return &RetryQueue{src: make(map[string]string)}
}

// Set records or refreshes a request. A refresh keeps the original position.
func (q *RetryQueue) Set(card, source string) {
	if _, ok := q.src[card]; !ok {
		q.order = append(q.order, card)
	}
	q.src[card] = source
}

// Delete drops a request if present.
func (q *RetryQueue) Delete(card string) {
	if _, ok := q.src[card]; !ok {
		return
	}
	delete(q.src, card)
	for i, id := range q.order {
		if id == card {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// Has reports whether card is queued.
func (q *RetryQueue) Has(card string) bool {
	_, ok := q.src[card]
	return ok
}

// Source returns the queued source for card.
func (q *RetryQueue) Source(card string) string {
	return q.src[card]
}

// Len returns the number of queued requests.
func (q *RetryQueue) Len() int { return len(q.order) }

// Keys returns a snapshot of queued cards in order.
func (q *RetryQueue) Keys() []string {
	return append([]string(nil), q.order...)
}

// Clear empties the queue.
func (q *RetryQueue) Clear() {
	q.order = q.order[:0]
	clear(q.src)
}
