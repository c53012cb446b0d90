package distributelock

// LockKey 返回资源对应的锁key: "<namespace>:<resource>:lock"
func LockKey(namespace, resource string) string {
	return namespace + ":" + resource + ":lock"
}

// ChannelName 返回资源对应的唤醒频道: "<namespace>:<resource>:lock:channel"
func ChannelName(namespace, resource string) string {
	return LockKey(namespace, resource) + ":channel"
}
