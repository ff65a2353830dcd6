// Package router talks to the router's UPnP IGD control endpoints (FRITZ!Box
// layout: http://<host>:49000/igdupnp/control/<service>).
package router

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/huin/goupnp/soap"
	"github.com/jackpal/gateway"
	"go.uber.org/zap"

	"github.com/zinrai/wan-ip-provider/internal/domain"
)

const (
	DefaultPort    = 49000
	DefaultTimeout = 10 * time.Second

	// AutoHost selects the default gateway as router host.
	AutoHost = "auto"

	controlPath = "/igdupnp/control/"

	serviceWANIPConn    = "WANIPConn1"
	serviceWANCommonIFC = "WANCommonIFC1"

	urnWANIPConnection = "urn:schemas-upnp-org:service:WANIPConnection:1"
	urnWANCommonIFC    = "urn:schemas-upnp-org:service:WANCommonInterfaceConfig:1"
)

var discoverGateway = gateway.DiscoverGateway

// ResolveHost returns host unchanged unless it is AutoHost, in which case the
// default gateway address is used.
func ResolveHost(host string) (string, error) {
	if host != AutoHost {
		return host, nil
	}
	ip, err := discoverGateway()
	if err != nil {
		return "", fmt.Errorf("failed to discover default gateway: %w", err)
	}
	return ip.String(), nil
}

type Client struct {
	baseURL url.URL
	timeout time.Duration
	logger  *zap.Logger
}

func NewClient(host string, port int, timeout time.Duration, logger *zap.Logger) *Client {
	if port == 0 {
		port = DefaultPort
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: url.URL{Scheme: "http", Host: net.JoinHostPort(host, strconv.Itoa(port))},
		timeout: timeout,
		logger:  logger.With(zap.String("component", "router")),
	}
}

func (c *Client) perform(ctx context.Context, service, urn, action string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL
	endpoint.Path = controlPath + service

	c.logger.Debug("sending SOAP request", zap.String("url", endpoint.String()), zap.String("action", action))
	if err := soap.NewSOAPClient(endpoint).PerformActionCtx(ctx, urn, action, nil, out); err != nil {
		return fmt.Errorf("%s#%s: %w", service, action, err)
	}
	return nil
}

// ResolveIPs asks the router for its external IPv4 and IPv6 addresses.
func (c *Client) ResolveIPs(ctx context.Context) domain.RouterResult {
	var result domain.RouterResult

	ipv4 := &struct {
		Address *string `xml:"NewExternalIPAddress"`
	}{}
	if err := c.perform(ctx, serviceWANIPConn, urnWANIPConnection, "GetExternalIPAddress", ipv4); err != nil {
		result.IPv4Err = err
	} else {
		result.IPv4, result.IPv4Err = extract(ipv4.Address, "NewExternalIPAddress", domain.IsValidIPv4)
	}

	ipv6 := &struct {
		Address *string `xml:"NewExternalIPv6Address"`
	}{}
	if err := c.perform(ctx, serviceWANIPConn, urnWANIPConnection, "X_AVM_DE_GetExternalIPv6Address", ipv6); err != nil {
		result.IPv6Err = err
	} else {
		result.IPv6, result.IPv6Err = extract(ipv6.Address, "NewExternalIPv6Address", domain.IsValidIPv6)
	}

	if err := result.Err(); err != nil {
		c.logger.Warn("router address lookup failed", zap.Error(err))
	} else {
		c.logger.Debug("router addresses resolved",
			zap.String("ipv4", domain.Deref(result.IPv4, "")),
			zap.String("ipv6", domain.Deref(result.IPv6, "")))
	}
	return result
}

// extract maps an absent field to ErrFieldMissing and an empty field to a
// null address.
func extract(field *string, name string, valid func(string) bool) (*string, error) {
	if field == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrFieldMissing, name)
	}
	if *field == "" {
		return nil, nil
	}
	if !valid(*field) {
		return nil, fmt.Errorf("%w: %s=%q", domain.ErrInvalidAddress, name, *field)
	}
	v := *field
	return &v, nil
}

// ForceRenewal asks the router to drop its WAN connection. It returns as soon
// as the router acknowledges; the new lease arrives asynchronously.
func (c *Client) ForceRenewal(ctx context.Context) error {
	c.logger.Info("sending ForceTermination request", zap.String("host", c.baseURL.Host))
	if err := c.perform(ctx, serviceWANIPConn, urnWANIPConnection, "ForceTermination", nil); err != nil {
		c.logger.Error("public IP refresh request failed", zap.Error(err))
		return err
	}
	c.logger.Info("public IP refresh request accepted")
	return nil
}

// WANStatistics collects link speed, uptime and byte counters.
func (c *Client) WANStatistics(ctx context.Context) (domain.WANStats, error) {
	var stats domain.WANStats

	link := &struct {
		Down *string `xml:"NewLayer1DownstreamMaxBitRate"`
		Up   *string `xml:"NewLayer1UpstreamMaxBitRate"`
	}{}
	if err := c.perform(ctx, serviceWANCommonIFC, urnWANCommonIFC, "GetCommonLinkProperties", link); err != nil {
		return stats, err
	}
	status := &struct {
		Uptime *string `xml:"NewUptime"`
	}{}
	if err := c.perform(ctx, serviceWANIPConn, urnWANIPConnection, "GetStatusInfo", status); err != nil {
		return stats, err
	}
	sent := &struct {
		Total *string `xml:"NewTotalBytesSent"`
	}{}
	if err := c.perform(ctx, serviceWANCommonIFC, urnWANCommonIFC, "GetTotalBytesSent", sent); err != nil {
		return stats, err
	}
	received := &struct {
		Total *string `xml:"NewTotalBytesReceived"`
	}{}
	if err := c.perform(ctx, serviceWANCommonIFC, urnWANCommonIFC, "GetTotalBytesReceived", received); err != nil {
		return stats, err
	}

	fields := []struct {
		name  string
		value *string
		dst   *uint64
	}{
		{"NewLayer1DownstreamMaxBitRate", link.Down, &stats.MaxDownstreamBitRate},
		{"NewLayer1UpstreamMaxBitRate", link.Up, &stats.MaxUpstreamBitRate},
		{"NewUptime", status.Uptime, &stats.UptimeSeconds},
		{"NewTotalBytesSent", sent.Total, &stats.BytesSent},
		{"NewTotalBytesReceived", received.Total, &stats.BytesReceived},
	}
	for _, f := range fields {
		if f.value == nil {
			return stats, fmt.Errorf("%w: %s", domain.ErrFieldMissing, f.name)
		}
		n, err := soap.UnmarshalUi8(*f.value)
		if err != nil {
			return stats, fmt.Errorf("failed to parse %s: %w", f.name, err)
		}
		*f.dst = n
	}
	return stats, nil
}
