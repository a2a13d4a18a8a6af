package sink

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rowforge/rowforge/internal/schema"
	"github.com/rowforge/rowforge/internal/valuegen"
)

// DocumentWriter inserts documents into a named collection.
type DocumentWriter interface {
	InsertDocuments(ctx context.Context, collection string, docs []bson.D) error
	Close(ctx context.Context) error
}

// mongoWriter implements DocumentWriter with the MongoDB driver.
type mongoWriter struct {
	client   *mongo.Client
	database string
}

func (m *mongoWriter) InsertDocuments(ctx context.Context, collection string, docs []bson.D) error {
	_, err := m.client.Database(m.database).Collection(collection).InsertMany(ctx, docs)
	return err
}

func (m *mongoWriter) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Collection inserts one document per row into <prefix><table>.
type Collection struct {
	prefix string
	writer DocumentWriter
}

// NewCollection connects to MongoDB and returns a collection sink.
func NewCollection(ctx context.Context, t CollectionTarget) (*Collection, error) {
	if t.ConnectionString == "" {
		return nil, fmt.Errorf("collection sink requires a connection string")
	}
	if t.Database == "" {
		return nil, fmt.Errorf("collection sink requires a database")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(t.ConnectionString))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}
	return NewCollectionWithWriter(t.Prefix, &mongoWriter{client: client, database: t.Database}), nil
}

// NewCollectionWithWriter creates a collection sink over an existing writer.
func NewCollectionWithWriter(prefix string, w DocumentWriter) *Collection {
	return &Collection{prefix: prefix, writer: w}
}

func (c *Collection) Name() string { return "collection" }

func (c *Collection) Write(ctx context.Context, table *schema.Table, rows []schema.Row) (Result, error) {
	name := table.QualifiedName()
	if len(rows) == 0 {
		return Result{}, &Error{Kind: KindEmptyBatch, Sink: c.Name(), Table: name, Err: ErrEmptyBatch}
	}

	cols := table.ColumnNames()
	docs := make([]bson.D, len(rows))
	for i, row := range rows {
		doc := make(bson.D, 0, len(cols))
		for _, col := range cols {
			v, err := bsonValue(row[col])
			if err != nil {
				return Result{}, &Error{Kind: KindWrite, Sink: c.Name(), Table: name, Err: fmt.Errorf("row %d column %s: %w", i, col, err)}
			}
			doc = append(doc, bson.E{Key: col, Value: v})
		}
		docs[i] = doc
	}

	coll := c.prefix + table.Name
	if err := c.writer.InsertDocuments(ctx, coll, docs); err != nil {
		return Result{}, &Error{Kind: KindWrite, Sink: c.Name(), Table: name, Err: fmt.Errorf("inserting into %s: %w", coll, err)}
	}
	return Result{Rows: len(rows), Artifact: coll}, nil
}

func (c *Collection) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.writer.Close(ctx)
}

// bsonValue converts generated values to their native BSON representation.
func bsonValue(v any) (any, error) {
	switch x := v.(type) {
	case valuegen.Decimal:
		return bson.ParseDecimal128(x.String())
	case valuegen.Date:
		return x.Time(), nil
	case []byte:
		return bson.Binary{Subtype: 0x00, Data: x}, nil
	default:
		return v, nil
	}
}
