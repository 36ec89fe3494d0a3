package mux

import (
	"fmt"
	"sort"

	"github.com/yylt/ocrmux/pkg"
	"k8s.io/klog/v2"
)

// Set holds the configured backends, highest index first.
type Set struct {
	list  []Recognizer
	names map[string]Recognizer
}

func NewSet(rs ...Recognizer) *Set {
	s := &Set{
		names: map[string]Recognizer{},
	}
	for i := range rs {
		if rs[i] == nil {
			continue
		}
		if _, ok := s.names[rs[i].Name()]; ok {
			klog.Warningf("duplicate backend '%s', ignore it", rs[i].Name())
			continue
		}
		klog.Infof("append backend '%s', model '%s', index '%d'", rs[i].Name(), rs[i].Model(), rs[i].Index())
		s.list = append(s.list, rs[i])
		s.names[rs[i].Name()] = rs[i]
	}
	sort.SliceStable(s.list, func(i, j int) bool {
		return s.list[i].Index() > s.list[j].Index()
	})
	return s
}

func (s *Set) List() []Recognizer {
	return s.list
}

func (s *Set) Len() int {
	return len(s.list)
}

// Get returns the named backend; an empty name selects the first one.
func (s *Set) Get(name string) (Recognizer, error) {
	if name == "" {
		if len(s.list) == 0 {
			return nil, pkg.ErrNoBackend
		}
		return s.list[0], nil
	}
	r, ok := s.names[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", pkg.ErrNoBackend, name)
	}
	return r, nil
}
