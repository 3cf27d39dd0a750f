// Package bitcask provides a client for interacting with a key-value
// store server over TCP.
//
// Example:
//
//	client, err := bitcask.Connect()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	_, err = client.SET("foo", "bar")
//	val, err := client.GET("foo")
package bitcask
