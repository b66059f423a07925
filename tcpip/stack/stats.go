package stack

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ministack"

// Stats 每个协议栈实例一份 注册在自己的 Registry 上
type Stats struct {
	registry *prometheus.Registry

	// Frames direction=rx|tx
	Frames *prometheus.CounterVec

	// Dropped layer=eth|arp|ip|icmp|udp
	Dropped *prometheus.CounterVec

	ARPRequests prometheus.Counter
	ARPReplies  prometheus.Counter

	IPFragmentsSent prometheus.Counter

	UDPDelivered prometheus.Counter

	// ICMPUnreachable code=protocol|port
	ICMPUnreachable *prometheus.CounterVec
}

// NewStats 创建计数器并注册到一个新的 Registry
func NewStats() *Stats {
	s := &Stats{
		registry: prometheus.NewRegistry(),
		Frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Total number of ethernet frames received and transmitted",
			},
			[]string{"direction"},
		),
		Dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_total",
				Help:      "Total number of packets dropped, by layer and reason",
			},
			[]string{"layer", "reason"},
		),
		ARPRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arp_requests_total",
			Help:      "Total number of ARP requests sent",
		}),
		ARPReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arp_replies_total",
			Help:      "Total number of ARP replies sent",
		}),
		IPFragmentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ip_fragments_sent_total",
			Help:      "Total number of IPv4 fragments sent",
		}),
		UDPDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "udp_delivered_total",
			Help:      "Total number of UDP datagrams delivered to a port handler",
		}),
		ICMPUnreachable: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "icmp_unreachable_total",
				Help:      "Total number of ICMP destination unreachable messages sent",
			},
			[]string{"code"},
		),
	}
	s.registry.MustRegister(
		s.Frames,
		s.Dropped,
		s.ARPRequests,
		s.ARPReplies,
		s.IPFragmentsSent,
		s.UDPDelivered,
		s.ICMPUnreachable,
	)
	return s
}

// Registry 给 promhttp 和测试用
func (s *Stats) Registry() *prometheus.Registry {
	return s.registry
}

// Drop 丢包计数
func (s *Stats) Drop(layer, reason string) {
	s.Dropped.WithLabelValues(layer, reason).Inc()
}
