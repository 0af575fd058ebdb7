package resolver

import (
	"reflect"
	"testing"
)

func TestUnionFind_Transitivity(t *testing.T) {
	// A-B 共享一个键，B-C 共享另一个键：三者必须归入同一集合
	uf := newUnionFind(4)
	uf.union(0, 1)
	uf.union(1, 2)

	if uf.find(0) != uf.find(2) {
		t.Fatal("expected 0 and 2 to share a root after transitive unions")
	}
	if uf.find(3) == uf.find(0) {
		t.Fatal("expected 3 to stay isolated")
	}

	got := uf.sets()
	want := [][]int{{0, 1, 2}, {3}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sets() = %v, want %v", got, want)
	}
}

func TestUnionFind_DeterministicOrder(t *testing.T) {
	// 不管 union 的调用顺序如何，sets() 的输出都一样
	build := func(pairs [][2]int) [][]int {
		uf := newUnionFind(6)
		for _, p := range pairs {
			uf.union(p[0], p[1])
		}
		return uf.sets()
	}

	a := build([][2]int{{4, 5}, {0, 2}, {2, 4}})
	b := build([][2]int{{0, 2}, {2, 4}, {4, 5}})
	c := build([][2]int{{5, 4}, {4, 2}, {2, 0}})

	want := [][]int{{0, 2, 4, 5}, {1}, {3}}
	for i, got := range [][][]int{a, b, c} {
		if !reflect.DeepEqual(got, want) {
			t.Errorf("variant %d: sets() = %v, want %v", i, got, want)
		}
	}
}

func TestUnionFind_SelfUnionNoop(t *testing.T) {
	uf := newUnionFind(2)
	uf.union(0, 0)
	uf.union(1, 1)
	if got := uf.sets(); !reflect.DeepEqual(got, [][]int{{0}, {1}}) {
		t.Fatalf("sets() = %v", got)
	}
}
