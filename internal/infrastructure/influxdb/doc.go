// Package influxdb records sensor readings in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks.
//
// # Data Model
//
// Every reading is one point in the "sensor" measurement:
//
//	sensor,source=w1,topic=sensor/w1/temperature/28-0316a2795cff value=21.5
//	sensor,source=switch,topic=sensor/switch/pi-hall/5 state=true
//
// The source tag is the second topic segment (the bridge kind), so
// dashboards can group readings without parsing topics.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading("sensor/w1/temperature/28-0316a2795cff", 21.5, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use. Write errors are delivered
// asynchronously to the callback set with SetOnError.
package influxdb
