package scraper

// taskQueue is a double-ended queue of sitemap URLs. Seeds go to the back;
// children of an index go to the front so a site's sub-sitemaps are drained
// before unrelated seeds. Only the crawl coordinator touches it.
type taskQueue struct {
	items []string
	head  int
}

func newTaskQueue(seeds []string) *taskQueue {
	q := &taskQueue{items: make([]string, 0, len(seeds))}
	q.PushBack(seeds...)
	return q
}

// Len returns the number of queued tasks.
func (q *taskQueue) Len() int {
	return len(q.items) - q.head
}

// PushBack appends tasks in order.
func (q *taskQueue) PushBack(urls ...string) {
	q.items = append(q.items, urls...)
}

// PushFront inserts urls as one block ahead of everything queued, keeping
// their relative order: after PushFront(a, b) the next pops are a then b.
func (q *taskQueue) PushFront(urls ...string) {
	if len(urls) == 0 {
		return
	}
	if len(urls) <= q.head {
		q.head -= len(urls)
		copy(q.items[q.head:], urls)
		return
	}
	rest := q.items[q.head:]
	items := make([]string, 0, len(urls)+len(rest))
	items = append(items, urls...)
	items = append(items, rest...)
	q.items = items
	q.head = 0
}

// PopFront removes and returns the first task.
func (q *taskQueue) PopFront() (string, bool) {
	if q.Len() == 0 {
		return "", false
	}
	u := q.items[q.head]
	q.items[q.head] = ""
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return u, true
}
