package resolver

import "sort"

// unionFind 是批次内的并查集，按共享候选键传递合并原始行下标。
//
// 下标顺序与批次加载顺序一致（按原始行 ID 升序），因此每个集合
// 的最小下标即最小原始行 ID，作为确定性的代表元。
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	size := make([]int, n)
	for i := range parent {
		parent[i] = i
		size[i] = 1
	}
	return &unionFind{parent: parent, size: size}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]] // path halving
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// sets 返回全部集合，成员升序排列，集合间按最小成员升序排列。
// 遍历顺序与哈希表迭代顺序无关，保证重跑输出一致。
func (u *unionFind) sets() [][]int {
	groups := make(map[int][]int)
	for i := range u.parent {
		root := u.find(i)
		groups[root] = append(groups[root], i)
	}
	out := make([][]int, 0, len(groups))
	for _, members := range groups {
		sort.Ints(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
