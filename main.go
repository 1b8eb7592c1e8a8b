package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

func main() {
	config := &LookoutConfig{}
	config.Parse()

	recorder := NewRecorder(config.Observer.ClusterName)
	if config.CanWriteToStatsD() {
		writer, err := NewStatsDWriter(&config.StatsD)
		if err != nil {
			log.Panicf("Problem with StatsD config! %v", err)
		}

		recorder.AddWriter(writer)
	}

	if config.CanWriteToInfluxDB() {
		writer, err := NewInfluxDBWriter(&config.InfluxDB)
		if err != nil {
			log.Panicf("Problem with InfluxDB config! %v", err)
		}

		recorder.AddWriter(writer)
	}

	if config.CanWriteToPrometheus() {
		writer, err := NewPrometheusExporter(&config.Prometheus)
		if err != nil {
			log.Panicf("Problem with Prometheus config! %v", err)
		}

		recorder.AddWriter(writer)
	}

	observer := NewObserver(&config.Observer, recorder)
	log.Infof("Starting lookout")

	select {
	case <-observer.Connect():
		go observer.Run()

	case <-time.After(60 * time.Second):
		log.Fatal("Couldn't start the observer! Quitting")
	}

	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, os.Interrupt, syscall.SIGTERM)
	<-termCh

	log.Infof("Stopping lookout")
	observer.Close()
	recorder.Flush()

	log.Infof("Done!")
}
