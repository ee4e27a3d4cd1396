package model

import "sort"

// MethodSet 以身份三元组去重的方法集合
type MethodSet map[MethodKey]*MethodObject

// Add 把方法加入集合，相同三元组的方法只保留先加入的一个
func (s MethodSet) Add(m *MethodObject) {
	if _, exists := s[m.Key()]; !exists {
		s[m.Key()] = m
	}
}

// Contains 判断集合是否包含同身份的方法
func (s MethodSet) Contains(m *MethodObject) bool {
	_, exists := s[m.Key()]
	return exists
}

// Slice 按完整方法名排序输出，便于稳定遍历
func (s MethodSet) Slice() []*MethodObject {
	methods := make([]*MethodObject, 0, len(s))
	for _, m := range s {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool {
		return methods[i].FullName() < methods[j].FullName()
	})
	return methods
}
