package main

import "encoding/json"

type banner struct {
	Service            string `json:"service"`
	Status             string `json:"status"`
	DatabaseConfigured bool   `json:"database_configured"`
	BrokerConfigured   bool   `json:"broker_configured"`
	NotifyChannel      string `json:"notify_channel"`
}

// bannerJSON renders the GET / response. The database is always configured
// once main gets this far.
func bannerJSON(service, channel string) ([]byte, error) {
	return json.Marshal(banner{
		Service:            service,
		Status:             "ok",
		DatabaseConfigured: true,
		BrokerConfigured:   channel != "none",
		NotifyChannel:      channel,
	})
}
