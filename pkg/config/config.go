package config

import (
	"fmt"
	"time"
)

// Config - корневая структура конфигурации приложения
// yaml и validate теги для парсинга и валидации

type Config struct {
	Logger   LoggerConfig   `yaml:"logger" validate:"required"`
	Server   ServerConfig   `yaml:"http-server" validate:"required"`
	Store    StoreConfig    `yaml:"store" validate:"required"`
	Topology TopologyConfig `yaml:"topology" validate:"required"`
	Scan     ScanConfig     `yaml:"scan"`
	Batch    BatchConfig    `yaml:"batch" validate:"required"`
	Keys     KeysConfig     `yaml:"keys" validate:"required"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Port              int           `yaml:"port" validate:"required,min=1,max=65535"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"required"`
}

type StoreConfig struct {
	// Kind выбирает реализацию: memory - партиции внутри процесса, redis - настоящие ноды
	Kind        string        `yaml:"kind" validate:"required,oneof=memory redis"`
	Addrs       []string      `yaml:"addrs" validate:"required_if=Kind redis,dive,hostname_port"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Password    string        `yaml:"password"`
	Memory      MemoryConfig  `yaml:"memory"`
}

type MemoryConfig struct {
	// Nodes - сколько партиций поднять, если addrs не заданы
	Nodes     int           `yaml:"nodes" validate:"min=0,max=64"`
	KeyCost   time.Duration `yaml:"key_cost"`
	QueueSize int           `yaml:"queue_size" validate:"min=0"`
}

type TopologyConfig struct {
	Source       string   `yaml:"source" validate:"required,oneof=static zookeeper cluster"`
	ZKServers    []string `yaml:"zk_servers" validate:"required_if=Source zookeeper,dive,hostname_port"`
	ZKRoot       string   `yaml:"zk_root" validate:"omitempty,startswith=/"`
	RingReplicas int      `yaml:"ring_replicas" validate:"min=1"`

	// Refresh - как часто перечитывать топологию из source=cluster, 0 - никогда
	Refresh time.Duration `yaml:"refresh"`
}

type ScanConfig struct {
	Hint       int  `yaml:"hint" validate:"min=0"`
	Concurrent bool `yaml:"concurrent"`
}

type BatchConfig struct {
	Size int `yaml:"size" validate:"required,min=1"`
}

type KeysConfig struct {
	Namespace string `yaml:"namespace" validate:"required,excludesall={}*?[]"`
}

// Default returns a baseline development config: three in-process
// partitions behind a static topology.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "DEBUG",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: time.Second,
		},
		Store: StoreConfig{
			Kind:        "memory",
			DialTimeout: 2 * time.Second,
			Memory: MemoryConfig{
				Nodes:     3,
				QueueSize: 1024,
			},
		},
		Topology: TopologyConfig{
			Source:       "static",
			ZKRoot:       "/keyscan",
			RingReplicas: 100,
			Refresh:      30 * time.Second,
		},
		Scan: ScanConfig{
			Hint: 10,
		},
		Batch: BatchConfig{
			Size: 1000,
		},
		Keys: KeysConfig{
			Namespace: "test",
		},
	}
}

// NodeAddrs returns the partition addresses to use. For the memory store
// without explicit addresses it makes up Memory.Nodes names.
func (c StoreConfig) NodeAddrs() []string {
	if len(c.Addrs) > 0 || c.Kind != "memory" {
		return c.Addrs
	}
	addrs := make([]string, c.Memory.Nodes)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("mem-%d:%d", i, 7000+i)
	}
	return addrs
}
