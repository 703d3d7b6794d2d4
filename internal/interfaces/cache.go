package interfaces

type Cache[K comparable, V any] interface {
	Add(key K, value V) (evicted bool)
	Get(key K) (V, bool)
	Remove(key K) bool
	Contains(key K) bool
	Purge()
	Len() int
}
