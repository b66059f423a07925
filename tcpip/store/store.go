// Package store 带过期时间的键值表 ARP 表 端口表都建在它上面
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// ErrExists Add 时 key 已经存在且没有过期
var ErrExists = errors.New("store: key already exists")

type entry[K comparable, V any] struct {
	key     K
	value   V
	updated time.Time
}

// Table 线程安全 过期是惰性的 不启动清理协程
type Table[K comparable, V any] struct {
	c      *cache.Cache
	ttl    time.Duration
	copyFn func(V) V
}

// Option 配置 Table
type Option[V any] func(*options[V])

type options[V any] struct {
	ttl    time.Duration
	copyFn func(V) V
}

// WithTTL 默认过期时间 0 表示永不过期
func WithTTL[V any](d time.Duration) Option[V] {
	return func(o *options[V]) { o.ttl = d }
}

// WithCopy 每次写入前对值做一次深拷贝
func WithCopy[V any](fn func(V) V) Option[V] {
	return func(o *options[V]) { o.copyFn = fn }
}

// New 新建一张表
func New[K comparable, V any](opts ...Option[V]) *Table[K, V] {
	o := options[V]{}
	for _, opt := range opts {
		opt(&o)
	}
	ttl := o.ttl
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Table[K, V]{
		// cleanupInterval 为 0 不会启动 janitor
		c:      cache.New(ttl, 0),
		ttl:    ttl,
		copyFn: o.copyFn,
	}
}

func (t *Table[K, V]) key(k K) string {
	return fmt.Sprint(k)
}

func (t *Table[K, V]) wrap(k K, v V) *entry[K, V] {
	if t.copyFn != nil {
		v = t.copyFn(v)
	}
	return &entry[K, V]{key: k, value: v, updated: time.Now()}
}

func (t *Table[K, V]) expiration(d time.Duration) time.Duration {
	if d <= 0 {
		return cache.NoExpiration
	}
	return d
}

// Set 写入或覆盖 使用默认过期时间
func (t *Table[K, V]) Set(k K, v V) {
	t.c.Set(t.key(k), t.wrap(k, v), cache.DefaultExpiration)
}

// SetWithTTL 写入或覆盖 使用指定的过期时间 d<=0 表示永不过期
func (t *Table[K, V]) SetWithTTL(k K, v V, d time.Duration) {
	t.c.Set(t.key(k), t.wrap(k, v), t.expiration(d))
}

// Add 原子的插入 key 已存在时返回 ErrExists
func (t *Table[K, V]) Add(k K, v V) error {
	return t.AddWithTTL(k, v, t.ttl)
}

// AddWithTTL 同 Add 使用指定的过期时间
func (t *Table[K, V]) AddWithTTL(k K, v V, d time.Duration) error {
	if err := t.c.Add(t.key(k), t.wrap(k, v), t.expiration(d)); err != nil {
		return ErrExists
	}
	return nil
}

// Get 查询 过期的条目视为不存在
func (t *Table[K, V]) Get(k K) (V, bool) {
	x, ok := t.c.Get(t.key(k))
	if !ok {
		var zero V
		return zero, false
	}
	return x.(*entry[K, V]).value, true
}

// Delete 删除 不存在时什么也不做
func (t *Table[K, V]) Delete(k K) {
	t.c.Delete(t.key(k))
}

// ForEach 遍历所有未过期的条目 顺序不确定
func (t *Table[K, V]) ForEach(fn func(k K, v V, updated time.Time)) {
	for _, it := range t.c.Items() {
		e := it.Object.(*entry[K, V])
		fn(e.key, e.value, e.updated)
	}
}

// Len 未过期的条目数
func (t *Table[K, V]) Len() int {
	return len(t.c.Items())
}
