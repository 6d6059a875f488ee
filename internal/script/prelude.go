package script

// prelude is emitted once at the top of every bundle. It defines the helper
// surface fragments (and author-supplied custom/extract code) rely on:
// error construction, sleeping with cancellation, nested selector resolution
// (iframe -> shadow -> query), native value setting, synthetic events and
// the visibility test. Everything lives inside the bundle's own function
// scope; nothing leaks into the page's globals.
const prelude = `const __cdErr = (kind, message) => {
  const e = new Error(message);
  e.__cdKind = kind;
  return e;
};
const __cdSleep = (ms) => new Promise((resolve) => setTimeout(resolve, ms));
async function __cdPause(ms, cancelled) {
  const until = Date.now() + ms;
  while (Date.now() < until) {
    if (cancelled()) throw __cdErr('ScriptExecutionError', 'cancelled by host');
    await __cdSleep(Math.min(100, until - Date.now()));
  }
}
function __cdQuery(cfg) {
  let root = document;
  if (cfg.iframeSelector) {
    const frame = document.querySelector(cfg.iframeSelector);
    if (!frame) return { el: null, missing: 'IframeNotFound', what: cfg.iframeSelector };
    let doc = null;
    try { doc = frame.contentDocument || (frame.contentWindow && frame.contentWindow.document); } catch (e) { doc = null; }
    if (!doc) throw __cdErr('IframeNotFound', 'iframe ' + cfg.iframeSelector + ' document is inaccessible');
    root = doc;
  }
  if (cfg.shadowHostSelector) {
    const host = root.querySelector(cfg.shadowHostSelector);
    if (!host) return { el: null, missing: 'ShadowHostNotFound', what: cfg.shadowHostSelector };
    if (!host.shadowRoot) throw __cdErr('ShadowHostNotFound', 'shadow root of ' + cfg.shadowHostSelector + ' is inaccessible');
    root = host.shadowRoot;
  }
  const el = root.querySelector(cfg.selector);
  if (!el) return { el: null, missing: 'SelectorNotFound', what: cfg.selector };
  return { el: el, missing: null, what: null };
}
async function __cdResolve(cfg, cancelled) {
  const timeoutMs = cfg.timeoutMs || 5000;
  const deadline = Date.now() + timeoutMs;
  for (;;) {
    if (cancelled()) throw __cdErr('ScriptExecutionError', 'cancelled by host');
    const probe = __cdQuery(cfg);
    if (probe.el) return probe.el;
    if (Date.now() >= deadline) throw __cdErr(probe.missing, probe.what + ' not found within ' + timeoutMs + 'ms');
    await __cdSleep(100);
  }
}
function __cdSetValue(el, text) {
  const tag = (el.tagName || '').toLowerCase();
  if (tag === 'input' || tag === 'textarea') {
    const proto = Object.getPrototypeOf(el);
    const desc = proto && Object.getOwnPropertyDescriptor(proto, 'value');
    if (desc && desc.set) { desc.set.call(el, text); } else { el.value = text; }
  } else {
    el.textContent = text;
  }
}
function __cdFire(el) {
  const opts = { bubbles: true };
  if (typeof InputEvent === 'function') {
    el.dispatchEvent(new InputEvent('input', opts));
  } else {
    el.dispatchEvent(new Event('input', opts));
  }
  el.dispatchEvent(new Event('change', opts));
}
function __cdVisible(el) {
  const rect = el.getBoundingClientRect();
  if (!rect || rect.width === 0 || rect.height === 0) return false;
  const win = (el.ownerDocument && el.ownerDocument.defaultView) || window;
  if (win && typeof win.getComputedStyle === 'function') {
    const style = win.getComputedStyle(el);
    if (style && (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0')) return false;
  }
  return true;
}
`
