/***
Copyright 2014 Cisco Systems Inc. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ofswitch

import (
	"net"
	"sync"
	"time"

	"github.com/contiv/libOpenflow/common"
	"github.com/contiv/libOpenflow/openflow13"
	"github.com/contiv/libOpenflow/util"
	log "github.com/sirupsen/logrus"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
)

// Note: to make ovs connect to the controller:
// ovs-vsctl set-controller <bridge-name> tcp:<ip-addr>:<port>
// ovs-vsctl set bridge <bridge-name> protocols=OpenFlow13

const (
	handshakeTimeout = 3 * time.Second
	sendTimeout      = 5 * time.Second
	echoInterval     = 3 * time.Second
)

// NodeResolver maps a switch datapath id to the node it belongs to.
type NodeResolver func(dpid string) (string, bool)

// Controller accepts OpenFlow 1.3 switch connections and registers each
// switch with an OpenflowChannel under its node id.
type Controller struct {
	channel   *OpenflowChannel
	resolve   NodeResolver
	onConnect func(nodeID string)

	listener net.Listener
	wg       sync.WaitGroup
}

// NewController returns a controller feeding channel. onConnect is called
// once a switch has been registered, to reprogram it from scratch.
func NewController(channel *OpenflowChannel, resolve NodeResolver,
	onConnect func(nodeID string)) *Controller {
	return &Controller{
		channel:   channel,
		resolve:   resolve,
		onConnect: onConnect,
	}
}

// Listen starts accepting switch connections on addr.
func (c *Controller) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	c.listener = listener
	log.Infof("Listening for switch connections on %s", listener.Addr())

	c.wg.Add(1)
	go c.serve()
	return nil
}

func (c *Controller) serve() {
	defer c.wg.Done()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			log.Infof("Switch listener closed: %v", err)
			return
		}

		c.wg.Add(1)
		go c.handleConnection(conn)
	}
}

// Close stops accepting connections and waits for pending handshakes.
func (c *Controller) Close() {
	if c.listener != nil {
		c.listener.Close()
	}
	c.wg.Wait()
}

// Parse demuxes messages based on version.
func (c *Controller) Parse(b []byte) (util.Message, error) {
	if len(b) == 0 || b[0] != openflow13.VERSION {
		return nil, core.Errorf("unsupported openflow message version")
	}
	return openflow13.Parse(b)
}

// handleConnection runs the hello and features handshake, then hands the
// stream to the switch receive loop.
func (c *Controller) handleConnection(conn net.Conn) {
	defer c.wg.Done()

	stream := util.NewMessageStream(conn, c)
	log.Infof("New switch connection from %s", conn.RemoteAddr())

	h, err := common.NewHello(openflow13.VERSION)
	if err != nil {
		stream.Shutdown <- true
		return
	}
	stream.Outbound <- h

	for {
		select {
		case msg := <-stream.Inbound:
			switch m := msg.(type) {
			case *common.Hello:
				if m.Version != openflow13.VERSION {
					log.Warnf("Received unsupported ofp version %d", m.Version)
					stream.Shutdown <- true
					return
				}
				stream.Version = m.Version
				stream.Outbound <- openflow13.NewFeaturesRequest()

			case *openflow13.SwitchFeatures:
				dpid := m.DPID.String()
				nodeID, ok := c.resolve(dpid)
				if !ok {
					log.Warnf("No node owns datapath %s, closing", dpid)
					stream.Shutdown <- true
					return
				}
				sc := &streamConn{stream: stream}
				c.channel.Connect(nodeID, sc)
				go c.receive(nodeID, sc)
				if c.onConnect != nil {
					c.onConnect(nodeID)
				}
				return

			case *openflow13.ErrorMsg:
				log.Warnf("Received ofp1.3 error msg during handshake: %+v", *m)
				stream.Shutdown <- true
				return
			}

		case err := <-stream.Error:
			log.Warnf("Switch connection failed: %v", err)
			return

		case <-time.After(handshakeTimeout):
			log.Warnf("Switch handshake with %s timed out", conn.RemoteAddr())
			stream.Shutdown <- true
			return
		}
	}
}

// receive answers keepalives until the stream fails, then unregisters the
// switch.
func (c *Controller) receive(nodeID string, conn *streamConn) {
	stream := conn.stream
	conn.Send(openflow13.NewEchoRequest())

	for {
		select {
		case msg := <-stream.Inbound:
			switch t := msg.(type) {
			case *common.Header:
				switch t.Header().Type {
				case openflow13.Type_EchoRequest:
					conn.Send(openflow13.NewEchoReply())
				case openflow13.Type_EchoReply:
					time.AfterFunc(echoInterval, func() {
						conn.Send(openflow13.NewEchoRequest())
					})
				}
			case *openflow13.ErrorMsg:
				log.Errorf("Switch %s reported error: %+v", nodeID, *t)
			}

		case err := <-stream.Error:
			log.Warnf("Switch %s disconnected: %v", nodeID, err)
			c.channel.release(nodeID, conn)
			return
		}
	}
}

// streamConn sends on a message stream without blocking forever on a
// stalled switch.
type streamConn struct {
	stream *util.MessageStream
}

func (s *streamConn) Send(msg util.Message) error {
	select {
	case s.stream.Outbound <- msg:
		return nil
	case <-time.After(sendTimeout):
		return core.Errorf("timed out sending to %s", s.stream.GetAddr())
	}
}
