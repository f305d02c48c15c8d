package utils

import (
	"github.com/emirpasic/gods/sets"
	"github.com/emirpasic/gods/sets/hashset"
)

// List2set 切片转集合，用于断点行、函数名和过滤器的对比
func List2set[T any](list []T) sets.Set {
	set := hashset.New()
	for _, value := range list {
		set.Add(value)
	}
	return set
}

// Difference 返回在a中但不在b中的元素，保持a中的顺序
func Difference[T comparable](a, b []T) []T {
	exclude := List2set(b)
	var result []T
	for _, value := range a {
		if !exclude.Contains(value) {
			result = append(result, value)
		}
	}
	return result
}
