package browser

// observerScript is evaluated on every new document. It installs a
// MutationObserver on the content tree and reports changes through the CDP
// binding, giving near-instant detection between poll ticks. Failures stay
// inside the page; nothing here may throw into the host.
const observerScript = `(() => {
  if (window.__conciergeObserved) return;
  window.__conciergeObserved = true;
  let queued = false;
  const ping = () => {
    if (queued) return;
    queued = true;
    setTimeout(() => {
      queued = false;
      try { window.` + mutationBinding + `('m'); } catch (e) {}
    }, 250);
  };
  const start = () => {
    const target = document.body || document.documentElement;
    if (!target) { setTimeout(start, 500); return; }
    try {
      new MutationObserver(ping).observe(target, {
        childList: true,
        subtree: true,
        characterData: true,
      });
    } catch (e) {}
  };
  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', start);
  } else {
    start();
  }
})();`
