package backpressure_test

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/LavishGent/backpressure/pkg/backpressure"
)

type BenchUser struct {
	ID    string
	Name  string
	Email string
	Age   int
}

func benchTransport() backpressure.Transport {
	body := json.RawMessage(`{"ID":"123","Name":"Alice","Email":"alice@example.com","Age":30}`)
	return backpressure.TransportFunc(func(context.Context, string, backpressure.SecretString) (json.RawMessage, error) {
		return body, nil
	})
}

func newBenchClient(b *testing.B) *backpressure.Client {
	b.Helper()
	c, err := backpressure.APIFactory(backpressure.ServiceConfig{
		BaseURL:     "https://api.example.com",
		Concurrency: 64,
	}, backpressure.WithConfig(backpressure.TestConfig()), backpressure.WithTransport(benchTransport()))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = c.Close() })
	return c
}

func BenchmarkClient_Get(b *testing.B) {
	c := newBenchClient(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = backpressure.Get[BenchUser](ctx, c, "/users/123")
	}
}

func BenchmarkClient_GetParallel(b *testing.B) {
	c := newBenchClient(b)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = backpressure.Get[BenchUser](ctx, c, "/users/123")
		}
	})
}

func newBenchMemoryCache(b *testing.B) *backpressure.MemoryCache[int, BenchUser] {
	b.Helper()
	c := newBenchClient(b)
	m, err := backpressure.WithMemoryCache(backpressure.MemoryCacheOptions[int, BenchUser]{
		GetKey: func(id int) backpressure.Key { return backpressure.KeyOf("user:" + strconv.Itoa(id)) },
		Fetcher: func(ctx context.Context, id int) (BenchUser, error) {
			return backpressure.Get[BenchUser](ctx, c, "/users/"+strconv.Itoa(id))
		},
	}, backpressure.WithConfig(backpressure.TestConfig()))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = m.Close() })
	return m
}

func BenchmarkMemoryCache_Hit(b *testing.B) {
	m := newBenchMemoryCache(b)
	ctx := context.Background()

	// Pre-populate cache
	for i := 0; i < 1000; i++ {
		_, _ = m.Get(ctx, i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Get(ctx, i%1000)
	}
}

func BenchmarkMemoryCache_HitParallel(b *testing.B) {
	m := newBenchMemoryCache(b)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_, _ = m.Get(ctx, i)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = m.Get(ctx, i%1000)
			i++
		}
	})
}

func BenchmarkFileCache_Hit(b *testing.B) {
	cfg := backpressure.TestConfig()
	cfg.FileCache.Dir = b.TempDir()
	fc := backpressure.OpenFileCache(backpressure.WithConfig(cfg))
	b.Cleanup(func() { _ = fc.Close() })

	cached := backpressure.WithFileCache(fc, backpressure.FileCacheOptions[int, BenchUser]{
		GetKey: func(id int) backpressure.Key { return backpressure.KeyOf("user:" + strconv.Itoa(id)) },
		Fetcher: func(_ context.Context, id int) (BenchUser, error) {
			return BenchUser{ID: strconv.Itoa(id), Name: "Bob"}, nil
		},
	})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, _ = cached.Get(ctx, i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cached.Get(ctx, i%100)
	}
}

func BenchmarkMapWithConcurrencyAndRetry(b *testing.B) {
	ids := make([]int, 100)
	for i := range ids {
		ids[i] = i
	}
	opts := backpressure.BulkOptionsFromConfig(backpressure.TestConfig(), 8)
	mapper := func(_ context.Context, id int) (int, error) { return id * 2, nil }
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = backpressure.MapWithConcurrencyAndRetry(ctx, ids, mapper, opts)
	}
}
