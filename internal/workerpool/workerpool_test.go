package workerpool

import "testing"

func TestClampWorkerCount(t *testing.T) {
	cases := []struct {
		in, min, max int
	}{
		{0, 1, 1},
		{-5, 1, 1},
		{1000000, 1, 1000000},
	}
	for _, c := range cases {
		got := ClampWorkerCount(c.in)
		if got < 1 {
			t.Errorf("ClampWorkerCount(%d) = %d, want >= 1", c.in, got)
		}
	}
}

func TestChunkJobs(t *testing.T) {
	jobs := make([]Job, 250)
	for i := range jobs {
		jobs[i] = Job{DocID: string(rune('a' + i%26))}
	}
	chunks := chunkJobs(jobs, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 100 || len(chunks[2]) != 50 {
		t.Fatalf("unexpected chunk sizes: %d %d %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestChunkJobsEmpty(t *testing.T) {
	if chunks := chunkJobs(nil, 100); chunks != nil {
		t.Fatalf("expected nil chunks for empty input, got %v", chunks)
	}
}
