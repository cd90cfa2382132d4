// Package redis connects the engine to the Redis instance backing the
// distributed tenant lock (pkg/lock.RedisLocker). It covers connect with
// retry, an env-driven Config, and a healthcheck closure for the HTTP
// health endpoint.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	locker := lock.NewRedisLocker(client)
package redis
