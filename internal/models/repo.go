package models

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/supabase-community/supabase-go"
	"go.mongodb.org/mongo-driver/mongo"
)

var Validate = validator.New()

type SupabaseRepo struct {
	supabaseClient *supabase.Client
	url            string
	key            string
	contractBucket string
	contestBucket  string
}

func SupabaseNewRepo(supabaseClient *supabase.Client, url, key string) *SupabaseRepo {
	return &SupabaseRepo{
		supabaseClient: supabaseClient,
		url:            url,
		key:            key,
		contractBucket: "event-contracts",
		contestBucket:  "special-event-images",
	}
}

// WithBuckets overrides the storage buckets used for contracts and contest images.
func (su *SupabaseRepo) WithBuckets(contract, contest string) *SupabaseRepo {
	if contract != "" {
		su.contractBucket = contract
	}
	if contest != "" {
		su.contestBucket = contest
	}
	return su
}

// GetAuthenticatedClient returns a Supabase client with the given access token
func (su *SupabaseRepo) GetAuthenticatedClient(accessToken string) (*supabase.Client, error) {
	if su.url == "" || su.key == "" {
		return su.supabaseClient, nil
	}

	options := &supabase.ClientOptions{
		Headers: map[string]string{
			"Authorization": "Bearer " + accessToken,
		},
	}

	return supabase.NewClient(su.url, su.key, options)
}

// clientFor picks the caller's session client when a token is present so that
// row-level security applies, and the shared client otherwise.
func (su *SupabaseRepo) clientFor(ctx context.Context) (*supabase.Client, error) {
	token := AccessTokenFrom(ctx)
	if token == "" {
		return su.supabaseClient, nil
	}
	return su.GetAuthenticatedClient(token)
}

type MongodbRepo struct {
	mongodbClient *mongo.Client
	dbName        string
}

func MongodbNewRepo(mongodbClient *mongo.Client, dbName string) *MongodbRepo {
	if dbName == "" {
		dbName = "vereinsheim"
	}
	return &MongodbRepo{
		mongodbClient: mongodbClient,
		dbName:        dbName,
	}
}
