package mongo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/orgspace/orgspace/internal/config"
	"github.com/orgspace/orgspace/internal/docstore"
)

func TestMapError(t *testing.T) {
	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}

	if err := mapError(mongo.ErrNoDocuments); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("mapError(ErrNoDocuments) = %v, want ErrNotFound", err)
	}

	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}}}
	err := mapError(dup)
	if !errors.Is(err, docstore.ErrDuplicateKey) {
		t.Errorf("mapError(duplicate) = %v, want ErrDuplicateKey", err)
	}
	var we mongo.WriteException
	if !errors.As(err, &we) {
		t.Error("driver error should stay in the chain")
	}

	other := errors.New("server selection timeout")
	if got := mapError(other); got != other {
		t.Errorf("mapError(other) = %v, want passthrough", got)
	}
}

func TestToFilter(t *testing.T) {
	t.Run("plain fields copied", func(t *testing.T) {
		got := toFilter(docstore.Filter{"org_name_ci": "acme"})
		if got["org_name_ci"] != "acme" {
			t.Errorf("toFilter() = %v", got)
		}
	})

	t.Run("hex id matches both representations", func(t *testing.T) {
		oid := primitive.NewObjectID()
		got := toFilter(docstore.ByID(oid.Hex()))
		in, ok := got["_id"].(bson.M)
		if !ok {
			t.Fatalf("_id filter = %#v, want $in clause", got["_id"])
		}
		alts, ok := in["$in"].(bson.A)
		if !ok || len(alts) != 2 || alts[0] != oid || alts[1] != oid.Hex() {
			t.Errorf("$in = %#v, want [ObjectID, hex string]", in["$in"])
		}
	})

	t.Run("non-hex string id unchanged", func(t *testing.T) {
		got := toFilter(docstore.ByID("3f1c2b9e-uuid"))
		if got["_id"] != "3f1c2b9e-uuid" {
			t.Errorf("_id = %#v, want unchanged string", got["_id"])
		}
	})

	t.Run("input not mutated", func(t *testing.T) {
		in := docstore.ByID(primitive.NewObjectID().Hex())
		_ = toFilter(in)
		if _, ok := in["_id"].(string); !ok {
			t.Error("toFilter mutated its input")
		}
	})
}

func TestIndexName(t *testing.T) {
	if got := indexName("org_name_ci"); got != "org_name_ci_unique" {
		t.Errorf("indexName() = %q", got)
	}
}

func TestFactoryRegistered(t *testing.T) {
	cfg := &config.Config{DocStore: config.DocStoreConfig{
		Backend: "mongo",
		Mongo:   config.MongoConfig{URI: "not-a-mongodb-uri"},
	}}
	_, _, err := docstore.New(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected connect error for an invalid URI")
	}
	if strings.Contains(err.Error(), "unsupported document store backend") {
		t.Fatalf("mongo backend should be registered: %v", err)
	}
}
