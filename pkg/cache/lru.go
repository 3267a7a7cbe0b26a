package cache

// lruList maintains eviction order with a doubly linked list and an
// index map, oldest at the tail.
type lruList struct {
	head  *lruNode
	tail  *lruNode
	nodes map[string]*lruNode
	size  int
}

type lruNode struct {
	key        string
	prev, next *lruNode
}

func newLRUList() *lruList {
	head := &lruNode{}
	tail := &lruNode{}
	head.next = tail
	tail.prev = head

	return &lruList{
		head:  head,
		tail:  tail,
		nodes: make(map[string]*lruNode),
	}
}

func (l *lruList) addToFront(key string) {
	if node, exists := l.nodes[key]; exists {
		l.moveNodeToFront(node)
		return
	}

	node := &lruNode{key: key}
	l.nodes[key] = node

	node.next = l.head.next
	node.prev = l.head
	l.head.next.prev = node
	l.head.next = node

	l.size++
}

func (l *lruList) moveToFront(key string) {
	if node, exists := l.nodes[key]; exists {
		l.moveNodeToFront(node)
	}
}

func (l *lruList) remove(key string) {
	if node, exists := l.nodes[key]; exists {
		l.removeNode(node)
		delete(l.nodes, key)
		l.size--
	}
}

// removeOldest removes and returns the least recently used key, or ""
// when the list is empty.
func (l *lruList) removeOldest() string {
	if l.size == 0 {
		return ""
	}

	oldest := l.tail.prev
	key := oldest.key
	l.removeNode(oldest)
	delete(l.nodes, key)
	l.size--

	return key
}

func (l *lruList) moveNodeToFront(node *lruNode) {
	l.removeNode(node)

	node.next = l.head.next
	node.prev = l.head
	l.head.next.prev = node
	l.head.next = node
}

func (l *lruList) removeNode(node *lruNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
}
