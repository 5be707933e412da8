// Package mongo is the MongoDB adapter of the tenancy pool manager: one
// database per tenant on top of mongo-driver/v2.
//
// Tenants that share the deployment reuse one *mongo.Client, since a client
// already pools connections across databases. A tenant whose descriptor
// carries its own url (config-map strategy) gets a dedicated client, which is
// disconnected when its pool is removed.
//
// MongoDB creates databases lazily, so CreateTenant materializes the tenant
// database with a marker collection and existence checks use
// listDatabases.
//
// # Usage
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	client, err := mongo.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Disconnect(ctx)
//
//	mgr, err := tenancy.New[*mongo.Pool](tcfg, mongo.NewAdapter(client, cfg,
//		mongo.WithDatabaseNameFormat(tcfg.DatabaseNameFormat()),
//	))
//
//	err = mgr.Scoped(ctx, "acme", func(ctx context.Context) error {
//		pool, err := mgr.Pool(ctx)
//		if err != nil {
//			return err
//		}
//		_, err = pool.Collection("users").InsertOne(ctx, bson.M{"name": "alice"})
//		return err
//	})
//
// # Error Handling
//
// ErrFailedToConnectToMongo is rescuable: exhausted retries surface as
// tenancy.ErrTenantNotFound. Healthcheck wraps ping failures in
// ErrHealthcheckFailed.
package mongo
