package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Token короткий номер операции, который видит оператор (#3)
type Token int

func (t Token) String() string { return "#" + strconv.Itoa(int(t)) }

// ParseToken разбирает "#3" или "3"
func ParseToken(s string) (Token, error) {
	s = strings.TrimSpace(s)
	num := strings.TrimPrefix(s, "#")
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("некорректная ссылка на операцию %q", s)
	}
	return Token(n), nil
}

// Registry сопоставляет токены операциям. Токены не переиспользуются.
type Registry[T any] struct {
	mu   sync.RWMutex
	next Token
	m    map[Token]T
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{m: make(map[Token]T)}
}

// Add регистрирует значение и возвращает новый токен
func (r *Registry[T]) Add(v T) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.m[r.next] = v
	return r.next
}

func (r *Registry[T]) Lookup(t Token) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[t]
	return v, ok
}

// Resolve разбирает текстовую ссылку и ищет операцию
func (r *Registry[T]) Resolve(ref string) (Token, T, error) {
	var zero T
	t, err := ParseToken(ref)
	if err != nil {
		return 0, zero, err
	}
	v, ok := r.Lookup(t)
	if !ok {
		return 0, zero, fmt.Errorf("%w: %s", ErrUnknownOperation, t)
	}
	return t, v, nil
}

func (r *Registry[T]) Remove(t Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[t]; !ok {
		return false
	}
	delete(r.m, t)
	return true
}

// Tokens возвращает токены по возрастанию
func (r *Registry[T]) Tokens() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Token, 0, len(r.m))
	for t := range r.m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Clear удаляет все записи
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m = make(map[Token]T)
}
