package client

import (
	"fmt"
	"net"
	"strings"

	"github.com/quasilyte/gdata"
)

// endpointKey gdata 中保存上次加入地址的条目名
const endpointKey = "endpoint"

// EndpointStore 持久化存储；*gdata.Manager 满足该接口
type EndpointStore interface {
	LoadItem(itemKey string) ([]byte, error)
	SaveItem(itemKey string, data []byte) error
}

// OpenEndpointStore 打开按应用名隔离的本地数据目录
func OpenEndpointStore(appName string) (*gdata.Manager, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open data store: %w", err)
	}
	return m, nil
}

// ResolveEndpoint 主机模式连回环地址；加入模式优先用保存过的地址，其次 fallback
func ResolveEndpoint(host bool, port int, store EndpointStore, fallback string) string {
	if host {
		return net.JoinHostPort("127.0.0.1", fmt.Sprint(port))
	}
	if store != nil {
		if data, err := store.LoadItem(endpointKey); err == nil {
			if addr := strings.TrimSpace(string(data)); addr != "" {
				return addr
			}
		}
	}
	return fallback
}

// LoopbackEndpoint 主机模式下按服务端实际监听地址（如 "[::]:41234"）取端口连回环
func LoopbackEndpoint(listenAddr string) (string, error) {
	_, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "", fmt.Errorf("listen addr %q: %w", listenAddr, err)
	}
	return net.JoinHostPort("127.0.0.1", port), nil
}

// SaveEndpoint 成功加入后记住地址
func SaveEndpoint(store EndpointStore, addr string) error {
	if store == nil {
		return nil
	}
	return store.SaveItem(endpointKey, []byte(addr))
}
