package db

import (
	"context"
	"fmt"
	"log"
	"time"

	mdb "go.mongodb.org/mongo-driver/mongo"
	mdbopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoConnectTimeout = 10 * time.Second

// ConnectMongo dials the cluster at uri and verifies it with a ping.
func ConnectMongo(ctx context.Context, uri, dbName string) (*mdb.Client, *mdb.Database, error) {
	if uri == "" {
		return nil, nil, fmt.Errorf("empty mongo uri")
	}
	if dbName == "" {
		return nil, nil, fmt.Errorf("empty mongo database name")
	}

	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	opts := mdbopts.Client().ApplyURI(uri)
	conn, err := mdb.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := conn.Ping(ctx, readpref.Primary()); err != nil {
		_ = conn.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return conn, conn.Database(dbName), nil
}

func DisconnectMongo(conn *mdb.Client) {
	if conn == nil {
		return
	}
	if err := conn.Disconnect(context.Background()); err != nil {
		log.Println("mongo disconnect:", err)
	}
}
