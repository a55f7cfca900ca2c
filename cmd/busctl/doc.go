// Command busctl drives an in-process patternbus.
//
//	busctl run scenario.yaml            # bind, fire, flush as scripted; print the trace
//	busctl run scenario.yaml --json     # same, as JSON
//	busctl serve --script bindings.yaml # read `fire <name> [payload]` lines from stdin,
//	                                    # expose /metrics and /bindings over HTTP
//	busctl version
//
// Configuration comes from config/app.json, .env and the environment
// (APP_ENV, LOG_LEVEL, LOG_MONGO_URI, BUS_SOURCE, REDIS_ADDR, MIRROR_CHANNEL,
// METRICS_ADDR, ...). Bindings with `mirror: true` need a reachable Redis.
package main
