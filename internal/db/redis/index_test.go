package redis

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/joelhooks/pdf-brain/internal/db"
)

func summaryIndex(t *testing.T) *db.IndexDefinition {
	t.Helper()
	def, err := db.NewIndex("pdfbrain:summaries:idx").
		Prefix("pdfbrain:summary:").
		Numeric("level").
		Tag("concept_id").
		VectorFlat("__vector", 3).As("vector").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return def
}

func TestCreateIndex_SendsRenderedArgs(t *testing.T) {
	s, c := newMockStore(t)
	def := summaryIndex(t)
	want, _ := def.Args()

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE" && slices.Equal(cmd[1:], want)
		})).
		Return(mock.Result(mock.RedisString("OK")))

	if err := s.CreateIndex(context.Background(), def); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		Do(gomock.Any(), command("FT.CREATE")).
		Return(mock.Result(mock.RedisError("Index already exists")))

	err := s.CreateIndex(context.Background(), summaryIndex(t))
	if !errors.Is(err, db.ErrIndexExists) {
		t.Fatalf("expected ErrIndexExists, got %v", err)
	}
}

func TestCreateIndex_InvalidDefinitionSkipsServer(t *testing.T) {
	s, _ := newMockStore(t)
	if err := s.CreateIndex(context.Background(), &db.IndexDefinition{Name: "idx"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestIndexExists(t *testing.T) {
	tests := []struct {
		name    string
		reply   rueidis.RedisResult
		want    bool
		wantErr bool
	}{
		{"present", mock.Result(mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("idx"))), true, false},
		{"unknown index", mock.Result(mock.RedisError("Unknown index name")), false, false},
		{"no such index", mock.Result(mock.RedisError("idx: no such index")), false, false},
		{"other error", mock.Result(mock.RedisError("ERR wrong number of arguments")), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c := newMockStore(t)
			c.EXPECT().Do(gomock.Any(), mock.Match("FT.INFO", "idx")).Return(tt.reply)

			got, err := s.IndexExists(context.Background(), "idx")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("exists = %v, want %v", got, tt.want)
			}
		})
	}
}
