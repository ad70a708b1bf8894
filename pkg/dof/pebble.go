package dof

// pebbleGame is the (2,3) pebble game for planar bar-joint frameworks. Every
// joint starts with two pebbles; a bar is independent when four pebbles can
// be gathered on its endpoints, and is then covered by one of them.
type pebbleGame struct {
	pebbles map[int]int
	out     map[int][]int // bar orientation: covering joint -> other joint
}

func newPebbleGame(joints []int) *pebbleGame {
	pg := &pebbleGame{
		pebbles: make(map[int]int, len(joints)),
		out:     make(map[int][]int, len(joints)),
	}
	for _, j := range joints {
		pg.pebbles[j] = 2
	}
	return pg
}

// addBar inserts bar u-v and reports whether it is independent. Redundant
// bars are not inserted.
func (pg *pebbleGame) addBar(u, v int) bool {
	if u == v {
		return true
	}
	if _, ok := pg.pebbles[u]; !ok {
		return true
	}
	if _, ok := pg.pebbles[v]; !ok {
		return true
	}
	for pg.pebbles[u]+pg.pebbles[v] < 4 {
		switch {
		case pg.pebbles[u] < 2 && pg.collect(u, u, v):
		case pg.pebbles[v] < 2 && pg.collect(v, u, v):
		default:
			return false
		}
	}
	if pg.pebbles[u] > 0 {
		pg.pebbles[u]--
		pg.out[u] = append(pg.out[u], v)
	} else {
		pg.pebbles[v]--
		pg.out[v] = append(pg.out[v], u)
	}
	return true
}

// collect searches the directed bar graph from start for a free pebble on a
// joint other than u and v, reverses the path and moves the pebble to start.
func (pg *pebbleGame) collect(start, u, v int) bool {
	parent := map[int]int{}
	seen := map[int]bool{u: true, v: true}
	stack := []int{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, nb := range pg.out[cur] {
			if seen[nb] {
				continue
			}
			seen[nb] = true
			parent[nb] = cur
			if pg.pebbles[nb] > 0 {
				pg.pebbles[nb]--
				pg.pebbles[start]++
				for w := nb; w != start; w = parent[w] {
					pg.reverse(parent[w], w)
				}
				return true
			}
			stack = append(stack, nb)
		}
	}
	return false
}

// reverse flips one bar from a->b to b->a.
func (pg *pebbleGame) reverse(a, b int) {
	edges := pg.out[a]
	for i, x := range edges {
		if x == b {
			pg.out[a] = append(edges[:i], edges[i+1:]...)
			break
		}
	}
	pg.out[b] = append(pg.out[b], a)
}
